package browser

// collectScript enumerates visible interactive candidates, tags each with a
// scratch index attribute and returns them as JSON.
const collectScript = `(opts) => {
  const REF = opts.refAttr, MARK = opts.markAttr;
  for (const el of document.querySelectorAll('[' + REF + '],[' + MARK + ']')) {
    el.removeAttribute(REF);
    el.removeAttribute(MARK);
  }

  const CANDIDATES = [
    'a[href]', 'button', 'input:not([type="hidden"])', 'select', 'textarea', 'summary',
    '[role="button"]', '[role="link"]', '[role="checkbox"]', '[role="radio"]', '[role="tab"]',
    '[role="menuitem"]', '[role="option"]', '[role="switch"]', '[role="combobox"]',
    '[role="textbox"]', '[role="searchbox"]', '[role="slider"]', '[role="treeitem"]',
    '[contenteditable=""]', '[contenteditable="true"]', '[onclick]', '[tabindex]:not([tabindex="-1"])'
  ].join(',');

  const ROLE_BY_TAG = { a: 'link', button: 'button', select: 'combobox', textarea: 'textbox', summary: 'button' };
  const ROLE_BY_INPUT = {
    button: 'button', submit: 'button', reset: 'button', image: 'button',
    checkbox: 'checkbox', radio: 'radio', range: 'slider', search: 'searchbox'
  };

  const clean = (s) => (s || '').replace(/\s+/g, ' ').trim();
  const cut = (s) => { s = clean(s); return s.length > opts.maxText ? s.slice(0, opts.maxText) : s; };
  const esc = (v) => (window.CSS && CSS.escape) ? CSS.escape(v) : v.replace(/["\\]/g, '\\$&');
  const unique = (sel) => { try { return document.querySelectorAll(sel).length === 1; } catch (e) { return false; } };

  const roleOf = (el) => {
    const explicit = clean(el.getAttribute('role'));
    if (explicit) return explicit.split(' ')[0];
    const tag = el.tagName.toLowerCase();
    if (tag === 'input') return ROLE_BY_INPUT[(el.getAttribute('type') || 'text').toLowerCase()] || 'textbox';
    if (el.isContentEditable) return 'textbox';
    return ROLE_BY_TAG[tag] || 'generic';
  };

  const labelOf = (el) => {
    const aria = clean(el.getAttribute('aria-label'));
    if (aria) return aria;
    const labelledBy = el.getAttribute('aria-labelledby');
    if (labelledBy) {
      const text = labelledBy.split(/\s+/).map((id) => { const n = document.getElementById(id); return n ? n.textContent : ''; }).join(' ');
      if (clean(text)) return clean(text);
    }
    const placeholder = clean(el.getAttribute('placeholder'));
    if (placeholder) return placeholder;
    const title = clean(el.getAttribute('title'));
    if (title) return title;
    if (el.labels && el.labels.length) {
      const text = clean(el.labels[0].textContent);
      if (text) return text;
    }
    if (el.tagName === 'INPUT' && ['button', 'submit', 'reset'].includes((el.type || '').toLowerCase())) {
      if (clean(el.value)) return clean(el.value);
    }
    return clean(el.innerText || el.textContent);
  };

  const pathOf = (el) => {
    const parts = [];
    let node = el;
    while (node && node.nodeType === 1 && parts.length < 6) {
      let part = node.tagName.toLowerCase();
      const parent = node.parentElement;
      if (parent) {
        const same = Array.from(parent.children).filter((c) => c.tagName === node.tagName);
        if (same.length > 1) part += ':nth-of-type(' + (same.indexOf(node) + 1) + ')';
      }
      parts.unshift(part);
      if (node.id && unique('#' + esc(node.id))) { parts[0] = '#' + esc(node.id); break; }
      node = parent;
    }
    return parts.join(' > ');
  };

  const selectorsOf = (el) => {
    const out = [];
    const tag = el.tagName.toLowerCase();
    if (el.id) { const s = '#' + esc(el.id); if (unique(s)) out.push(s); }
    const testid = el.getAttribute('data-testid');
    if (testid) { const s = '[data-testid="' + esc(testid) + '"]'; if (unique(s)) out.push(s); }
    const name = el.getAttribute('name');
    if (name) { const s = tag + '[name="' + esc(name) + '"]'; if (unique(s)) out.push(s); }
    const aria = el.getAttribute('aria-label');
    if (aria) { const s = tag + '[aria-label="' + esc(aria) + '"]'; if (unique(s)) out.push(s); }
    return out;
  };

  const vw = window.innerWidth || document.documentElement.clientWidth;
  const vh = window.innerHeight || document.documentElement.clientHeight;
  const sx = window.scrollX || 0;
  const sy = window.scrollY || 0;
  const docW = Math.max(document.documentElement.scrollWidth, vw);
  const docH = Math.max(document.documentElement.scrollHeight, vh);
  const out = [];
  let index = 0;

  for (const el of document.querySelectorAll(CANDIDATES)) {
    if (index >= opts.maxCandidates) break;
    const style = window.getComputedStyle(el);
    if (style.display === 'none' || style.visibility === 'hidden' || Number(style.opacity) === 0) continue;
    const r = el.getBoundingClientRect();
    if (r.width <= 0 || r.height <= 0) continue;
    // Unreachable by scrolling: parked off-screen.
    if (r.right + sx <= 0 || r.bottom + sy <= 0 || r.left + sx >= docW || r.top + sy >= docH) continue;

    el.setAttribute(MARK, String(index));
    out.push({
      index: index,
      tag: el.tagName.toLowerCase(),
      role: roleOf(el),
      input_type: el.tagName === 'INPUT' ? (el.getAttribute('type') || 'text').toLowerCase() : '',
      name: cut(labelOf(el)),
      text: cut(el.innerText || el.textContent || el.value || ''),
      selectors: selectorsOf(el),
      path: pathOf(el),
      x: r.left, y: r.top, width: r.width, height: r.height,
      in_viewport: r.bottom > 0 && r.right > 0 && r.top < vh && r.left < vw,
      disabled: !!(el.disabled || el.getAttribute('aria-disabled') === 'true'),
      pointer: style.cursor === 'pointer'
    });
    index++;
  }
  return JSON.stringify(out);
}`

// tagScript writes the ref attribute on the selected candidates and strips
// every scratch marker. It returns the number of tagged elements.
const tagScript = `(opts) => {
  let tagged = 0;
  for (const el of document.querySelectorAll('[' + opts.markAttr + ']')) {
    const ref = opts.refs[el.getAttribute(opts.markAttr)];
    if (ref) { el.setAttribute(opts.refAttr, ref); tagged++; }
    el.removeAttribute(opts.markAttr);
  }
  return JSON.stringify(tagged);
}`
